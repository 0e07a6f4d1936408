// Copyright (c) 2019-2020, AT&T Intellectual Property. All rights reserved.
//
// SPDX-License-Identifier: LGPL-2.1-only

package server

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/danos/mgmterror"
	"github.com/danos/rtrmgr"
	"github.com/danos/rtrmgr/schema"
	"github.com/danos/rtrmgr/session"

	"golang.org/x/crypto/ssh"
)

func loginSchemaPathForUser(user string) []string {
	return []string{"system", "login", "user", user}
}

func publicKeysSchemaPathForUser(user string) []string {
	return append(loginSchemaPathForUser(user), "authentication", "public-keys")
}

type sshPublicKey struct {
	key     ssh.PublicKey
	Comment string
}

func (k *sshPublicKey) Type() string {
	return k.key.Type()
}

func (k *sshPublicKey) Base64Key() string {
	key := ssh.MarshalAuthorizedKey(k.key)
	key = bytes.TrimPrefix(key, []byte(k.Type()+" "))
	return strings.TrimRight(string(key), "\n")
}

// parseAuthorizedKeys parses every key line in an authorized-keys file.
// A key without a comment cannot be addressed as a configuration entry,
// so it is rejected rather than silently skipped.
func parseAuthorizedKeys(data []byte) ([]*sshPublicKey, error) {
	var keys []*sshPublicKey
	for len(data) > 0 {
		trimmed := bytes.TrimLeft(data, " \t\r\n")
		if len(trimmed) == 0 {
			break
		}
		if trimmed[0] == '#' {
			if i := bytes.IndexByte(trimmed, '\n'); i >= 0 {
				data = trimmed[i+1:]
				continue
			}
			break
		}
		key, comment, _, rest, err := ssh.ParseAuthorizedKey(trimmed)
		if err != nil {
			return nil, err
		}
		if comment == "" {
			return nil, fmt.Errorf("public key has no comment to name it by")
		}
		keys = append(keys, &sshPublicKey{key: key, Comment: comment})
		data = rest
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no public keys found")
	}
	return keys, nil
}

// loadKeys imports an authorized-keys file into a user's public-keys
// subtree and commits the result. The target user must already exist in
// the committed configuration.
func loadKeys(sess *session.Session, ctx *rtrmgr.Context, user, source string) (string, error) {
	if !sess.Exists(ctx, loginSchemaPathForUser(user)) {
		err := mgmterror.NewOperationFailedApplicationError()
		err.Message = fmt.Sprintf("user %s does not exist in the configuration", user)
		return "", err
	}

	data, readErr := os.ReadFile(source)
	if readErr != nil {
		return "", readErr
	}
	keys, err := parseAuthorizedKeys(data)
	if err != nil {
		return "", err
	}

	base := publicKeysSchemaPathForUser(user)
	for _, key := range keys {
		entry := append(append([]string{}, base...), key.Comment)
		typePath := append(append([]string{}, entry...), "type")
		keyPath := append(append([]string{}, entry...), "key")
		if err := sess.Set(ctx, typePath, key.Type(), schema.OpSet); err != nil {
			return "", err
		}
		if err := sess.Set(ctx, keyPath, key.Base64Key(), schema.OpSet); err != nil {
			return "", err
		}
	}
	if err := sess.Commit(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("Loaded %d keys for %s", len(keys), user), nil
}
