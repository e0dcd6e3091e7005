package vaulta

import "io"

// SetOpenFile swaps the opener behind FromPath sources.
func SetOpenFile(fn func(string) (io.ReadCloser, error)) (restore func()) {
	prev := openFile
	openFile = fn

	return func() { openFile = prev }
}
