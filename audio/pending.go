package audio

import (
	"os"
	"path/filepath"

	"metadata-injector/errors"
	"metadata-injector/storage"
)

// pending is the output file of a tag write. It lives next to the target
// so the final rename stays on one filesystem, and carries the prefix the
// upload store skips.
type pending struct {
	*os.File
	target string
	done   bool
}

func newPending(target string) (*pending, error) {
	const op errors.Op = "audio.newPending"

	f, err := os.CreateTemp(filepath.Dir(target), storage.PendingPrefix+"*"+filepath.Ext(target))
	if err != nil {
		return nil, errors.E(op, errors.TagSave, err)
	}
	return &pending{File: f, target: target}, nil
}

// Commit replaces the target with the pending file
func (p *pending) Commit() error {
	const op errors.Op = "audio.pending.Commit"

	if err := p.File.Close(); err != nil {
		return errors.E(op, errors.TagSave, err)
	}
	if fi, err := os.Stat(p.target); err == nil {
		// keep the permissions of the original, CreateTemp uses 0600
		if err := os.Chmod(p.Name(), fi.Mode().Perm()); err != nil {
			return errors.E(op, errors.TagSave, err)
		}
	}
	if err := os.Rename(p.Name(), p.target); err != nil {
		return errors.E(op, errors.TagSave, err)
	}
	p.done = true
	return nil
}

// Discard removes the pending file unless it was committed, it is safe to
// call more than once
func (p *pending) Discard() {
	if p.done {
		return
	}
	p.done = true
	p.File.Close()
	os.Remove(p.Name())
}
