//go:build !darwin || !cgo

package permissions

func preflight() bool { return true }

func request() bool { return true }
