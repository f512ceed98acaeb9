// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides token generation and password utilities.

# Tokens

Polls carry two opaque tokens: the admin token grants owner access and the
public token grants participant access. Voters receive an edit token that
permits later edits or withdrawal of their votes. Session cookies carry a
token of the same shape:

	token, err := auth.GenerateToken()

Tokens are 24 random bytes (192 bits), URL-safe base64 without padding.
ValidateToken rejects malformed tokens before a lookup.

# Passwords

Passwords are hashed with bcrypt at the default cost:

	hash, err := auth.HashPassword(password)
	err = auth.CheckPassword(hash, password)

# IDs

Database records use random UUIDs:

	id := auth.GenerateID()

# IP Hashing

Rate-limit buckets and logs use salted IP hashes instead of raw addresses:

	hash := auth.HashIP(ipAddress, salt)
*/
package auth
