//go:build !linux

package core

func osThreadID() int { return -1 }

func applyThreadPriority(ThreadPriority) error { return nil }
