// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package metadata

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/cumulus-backup/cumulus/pkg/cumuluserrs"
	"github.com/cumulus-backup/cumulus/pkg/objref"
)

// User is a decoded user/group field: a numeric id plus an optional
// parenthesized display name.
type User struct {
	ID   int64
	Name string
}

// Device is a decoded major/minor device number pair.
type Device struct {
	Major int64
	Minor int64
}

// Item is the typed view of one metadata log stanza describing a single
// filesystem entry.
type Item struct {
	Raw Stanza

	fetcher Fetcher

	Name     string
	Type     string
	Mode     int64
	HasMode  bool
	Device   Device
	HasDevice bool
	User     User
	HasUser  bool
	Group    User
	HasGroup bool
	Ctime    int64
	HasCtime bool
	Mtime    int64
	HasMtime bool
	Links    int64
	HasLinks bool
	Inode    string
	Checksum string
	Size     int64
	HasSize  bool
	Contents string
	Target   string
}

func newItem(s Stanza, f Fetcher) *Item {
	item := &Item{Raw: s, fetcher: f}

	if v, ok := s["name"]; ok {
		item.Name = decodeStr(v)
	}
	if v, ok := s["type"]; ok {
		item.Type = v
	}
	if v, ok := s["mode"]; ok {
		if n, err := decodeInt(v); err == nil {
			item.Mode, item.HasMode = n, true
		}
	}
	if v, ok := s["device"]; ok {
		if d, err := decodeDevice(v); err == nil {
			item.Device, item.HasDevice = d, true
		}
	}
	if v, ok := s["user"]; ok {
		if u, err := decodeUser(v); err == nil {
			item.User, item.HasUser = u, true
		}
	}
	if v, ok := s["group"]; ok {
		if u, err := decodeUser(v); err == nil {
			item.Group, item.HasGroup = u, true
		}
	}
	if v, ok := s["ctime"]; ok {
		if n, err := decodeInt(v); err == nil {
			item.Ctime, item.HasCtime = n, true
		}
	}
	if v, ok := s["mtime"]; ok {
		if n, err := decodeInt(v); err == nil {
			item.Mtime, item.HasMtime = n, true
		}
	}
	if v, ok := s["links"]; ok {
		if n, err := decodeInt(v); err == nil {
			item.Links, item.HasLinks = n, true
		}
	}
	if v, ok := s["inode"]; ok {
		item.Inode = v
	}
	if v, ok := s["checksum"]; ok {
		item.Checksum = decodeStr(v)
	}
	if v, ok := s["size"]; ok {
		if n, err := decodeInt(v); err == nil {
			item.Size, item.HasSize = n, true
		}
	}
	if v, ok := s["contents"]; ok {
		item.Contents = decodeStr(v)
	}
	if v, ok := s["target"]; ok {
		item.Target = decodeStr(v)
	}

	return item
}

// IsRegular reports whether this item describes a plain file ('-' or
// 'f' in the metadata log).
func (i *Item) IsRegular() bool {
	return i.Type == "-" || i.Type == "f"
}

func decodeInt(s string) (int64, error) {
	switch {
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		return strconv.ParseInt(s[2:], 16, 64)
	case strings.HasPrefix(s, "0") && s != "0":
		return strconv.ParseInt(s, 8, 64)
	default:
		return strconv.ParseInt(s, 10, 64)
	}
}

func decodeStr(s string) string {
	if decoded, err := url.PathUnescape(s); err == nil {
		return decoded
	}
	return s
}

func decodeUser(s string) (User, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return User{}, cumuluserrs.Corrupt.New("empty user/group field")
	}
	id, err := decodeInt(fields[0])
	if err != nil {
		return User{}, cumuluserrs.Corrupt.Wrap(err)
	}
	u := User{ID: id}
	if len(fields) > 1 && strings.HasPrefix(fields[1], "(") && strings.HasSuffix(fields[1], ")") {
		u.Name = decodeStr(fields[1][1 : len(fields[1])-1])
	}
	return u, nil
}

func decodeDevice(s string) (Device, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return Device{}, cumuluserrs.Corrupt.New("malformed device field %q", s)
	}
	major, err := decodeInt(parts[0])
	if err != nil {
		return Device{}, cumuluserrs.Corrupt.Wrap(err)
	}
	minor, err := decodeInt(parts[1])
	if err != nil {
		return Device{}, cumuluserrs.Corrupt.Wrap(err)
	}
	return Device{Major: major, Minor: minor}, nil
}

// Data returns the flattened sequence of block references making up
// this file's contents, following "@"-prefixed indirect references with
// the same depth-first technique as ReadLog, but over whitespace
// separated tokens rather than lines.
func (i *Item) Data(ctx context.Context) ([]string, error) {
	raw, ok := i.Raw["data"]
	if !ok {
		return nil, nil
	}

	var stack [][]string
	push := func(refstr string) error {
		if len(stack) >= MaxRecursionDepth {
			return cumuluserrs.RecursionTooDeep.New("data block recursion exceeds depth %d", MaxRecursionDepth)
		}
		ref, err := objref.Parse(refstr)
		if err != nil {
			return err
		}
		bytes, err := i.fetcher.Get(ctx, ref)
		if err != nil {
			return err
		}
		stack = append(stack, reversedFields(string(bytes)))
		return nil
	}

	stack = append(stack, reversedFields(raw))

	var out []string
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if len(top) == 0 {
			stack = stack[:len(stack)-1]
			continue
		}

		ref := top[len(top)-1]
		stack[len(stack)-1] = top[:len(top)-1]

		if strings.HasPrefix(ref, "@") {
			if err := push(ref[1:]); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, ref)
	}

	return out, nil
}

func reversedFields(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, len(fields))
	for i, f := range fields {
		out[len(fields)-1-i] = f
	}
	return out
}
