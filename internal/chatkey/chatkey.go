// Package chatkey computes canonical identities for conversations.
//
// A conversation is either a private chat between two users or a group chat. Ref is the typed form
// used by the code, Key is the opaque string form persisted alongside messages, directory rows and
// typing indicators. Both encodings round-trip: Parse(r.Key()) == r for every valid Ref.
package chatkey

import (
	"errors"
	"strconv"
	"strings"
)

const (
	privateTag = "private"
	groupTag   = "group"
	separator  = "_"
)

var ErrMalformedKey = errors.New("malformed chat key")

// Kind discriminates the two conversation shapes
type Kind uint8

const (
	Private Kind = iota + 1
	Group
)

func (k Kind) String() string {
	switch k {
	case Private:
		return privateTag
	case Group:
		return groupTag
	default:
		return "unknown"
	}
}

// Ref identifies a conversation. For Private refs UserA < UserB always holds.
type Ref struct {
	Kind    Kind
	UserA   int64
	UserB   int64
	GroupID int64
}

// PrivateRef returns the ref of the private chat between a and b. Argument order does not matter.
func PrivateRef(a, b int64) Ref {
	if b < a {
		a, b = b, a
	}
	return Ref{Kind: Private, UserA: a, UserB: b}
}

// GroupRef returns the ref of the group chat with the given id
func GroupRef(groupID int64) Ref {
	return Ref{Kind: Group, GroupID: groupID}
}

// Key returns the persisted form of r
func (r Ref) Key() string {
	switch r.Kind {
	case Private:
		return privateTag + separator + strconv.FormatInt(r.UserA, 10) + separator + strconv.FormatInt(r.UserB, 10)
	case Group:
		return groupTag + separator + strconv.FormatInt(r.GroupID, 10)
	default:
		return ""
	}
}

func (r Ref) String() string { return r.Key() }

// Type returns "private" or "group"
func (r Ref) Type() string { return r.Kind.String() }

func (r Ref) IsPrivate() bool { return r.Kind == Private }

// Includes reports whether userID is one side of a private chat. Group refs never include anybody,
// membership is stored separately.
func (r Ref) Includes(userID int64) bool {
	return r.Kind == Private && (r.UserA == userID || r.UserB == userID)
}

// Peer returns the other side of a private chat or 0 if userID is not a participant
func (r Ref) Peer(userID int64) int64 {
	if r.Kind != Private {
		return 0
	}
	switch userID {
	case r.UserA:
		return r.UserB
	case r.UserB:
		return r.UserA
	default:
		return 0
	}
}

// Parse decodes a key produced by Ref.Key. Only the canonical encoding is accepted.
func Parse(key string) (Ref, error) {
	parts := strings.Split(key, separator)
	switch {
	case len(parts) == 3 && parts[0] == privateTag:
		a, err := parseID(parts[1])
		if err != nil {
			return Ref{}, err
		}
		b, err := parseID(parts[2])
		if err != nil {
			return Ref{}, err
		}
		if a >= b {
			return Ref{}, ErrMalformedKey
		}
		return Ref{Kind: Private, UserA: a, UserB: b}, nil
	case len(parts) == 2 && parts[0] == groupTag:
		id, err := parseID(parts[1])
		if err != nil {
			return Ref{}, err
		}
		return GroupRef(id), nil
	default:
		return Ref{}, ErrMalformedKey
	}
}

func parseID(s string) (int64, error) {
	// reject "+1", "01" and friends so that every id has a single spelling
	if s == "" || s[0] == '+' || s[0] == '-' || (len(s) > 1 && s[0] == '0') {
		return 0, ErrMalformedKey
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id < 1 {
		return 0, ErrMalformedKey
	}
	return id, nil
}
