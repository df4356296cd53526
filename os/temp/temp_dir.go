// Package temp holds the local directory submission scripts are staged in
// before they are pushed to the scheduler host.
package temp

import (
	"fmt"
	"io/ioutil"
	"os"
)

// TempDir is a staging directory. Files written under it are removed by the caller.
type TempDir struct {
	Dir string
}

// Create a new temporary file under d. A "*" in pattern is replaced by a
// random string, otherwise the random string is appended.
func (d *TempDir) TempFile(pattern string) (*os.File, error) {
	return ioutil.TempFile(d.Dir, pattern)
}

// WriteTempFile writes data into a new temporary file under d and returns its path.
// The file is removed again if the write fails.
func (d *TempDir) WriteTempFile(pattern string, data []byte) (string, error) {
	f, err := d.TempFile(pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Remove the directory and everything under it.
func (d *TempDir) RemoveAll() error {
	return os.RemoveAll(d.Dir)
}

// TempDirDefault creates a TempDir rooted in the default temp dir
func TempDirDefault() (*TempDir, error) {
	tmpDir, err := ioutil.TempDir("", "htcproxy-tmp-")
	if err != nil {
		return nil, fmt.Errorf("temp.TempDirDefault: couldn't ioutil.TempDir: %v", err)
	}
	return &TempDir{tmpDir}, err
}
