//go:build !windows

package main

import "os"

// enableVT does nothing outside Windows; unix terminals interpret ANSI sequences already.
func enableVT(*os.File) error { return nil }
