package wire

import (
	"fmt"
	"math"
	"path"
	"strings"
)

// MaxDeclaredSize is the largest size a blob can have on disk.
const MaxDeclaredSize = math.MaxInt64

// Validate checks a request and normalizes its directory in place: an empty
// directory becomes "/" and every directory is cleaned and rooted.
func (r *RequestMsg) Validate(shardWidth int) error {
	if err := ValidateHash(r.ContentHash, shardWidth); err != nil {
		return err
	}

	if err := validateName(r.Name); err != nil {
		return err
	}

	if r.DeclaredSize > MaxDeclaredSize {
		return fmt.Errorf("declared size %d exceeds %d", r.DeclaredSize, uint64(MaxDeclaredSize))
	}

	r.Directory = CleanDirectory(r.Directory)
	return nil
}

// Validate normalizes a delete the same way. Name and Directory are optional
// but travel together: a directory without a name is rejected.
func (d *DeleteMsg) Validate(shardWidth int) error {
	if err := ValidateHash(d.ContentHash, shardWidth); err != nil {
		return err
	}

	if d.Name == "" {
		if d.Directory != "" {
			return fmt.Errorf("directory %q given without a name", d.Directory)
		}
		return nil
	}

	if err := validateName(d.Name); err != nil {
		return err
	}

	d.Directory = CleanDirectory(d.Directory)
	return nil
}

// HasPath reports whether the delete targets one path rather than every mapping
// of the hash.
func (d DeleteMsg) HasPath() bool {
	return d.Name != ""
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("invalid name %q", name)
	}

	return nil
}

// ValidateHash accepts a non-empty alphanumeric hash longer than shardWidth.
func ValidateHash(hash string, shardWidth int) error {
	if len(hash) <= shardWidth {
		return fmt.Errorf("content hash %q is too short", hash)
	}

	for _, r := range hash {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return fmt.Errorf("content hash %q contains %q", hash, r)
		}
	}

	return nil
}

func CleanDirectory(dir string) string {
	if dir == "" {
		return "/"
	}

	return path.Clean("/" + dir)
}
