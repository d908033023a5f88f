package sst

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// bootstrap implements §4.8: on construction, scan basedir and rebuild the
// meta directory by reading each *.sst file's footer. It also carries
// SPEC_FULL.md's supplemented item 1: the original engine/sst.c tolerates
// a directory containing non-.sst entries (it matches via strstr rather
// than asserting), and New already created basedir if it didn't exist, so
// an empty scan is a normal first run rather than an error.
func (s *SST) bootstrap() error {
	entries, err := os.ReadDir(s.basedir)
	if err != nil {
		return errors.Wrapf(err, "sst: read basedir %s", s.basedir)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sst") {
			continue
		}

		path := filepath.Join(s.basedir, e.Name())
		f, err := os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			fatal(errors.Wrapf(err, "sst: open %s during bootstrap", path))
		}

		ft, err := readFooter(f, s.maxKeySize)
		f.Close()
		if err != nil {
			fatal(errors.Wrapf(err, "sst: bootstrap %s", path))
		}

		if ft.count == 0 {
			continue
		}
		s.meta.Set(Descriptor{
			IndexName:   e.Name(),
			EndKey:      ft.lastKey,
			RecordCount: ft.count,
		})
	}
	return nil
}
