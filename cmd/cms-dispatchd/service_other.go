//go:build !windows

package main

func runAsService() bool { return false }
