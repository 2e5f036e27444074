// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"sync"

	"github.com/awnumar/memguard"
)

// Environment variables the secrets are read from.
const (
	// EnvJWTSecret holds the HS256 signing key shared with the identity
	// provider.
	EnvJWTSecret = "ADFORGE_JWT_SECRET"

	// EnvFalKey holds the fal.ai API key.
	EnvFalKey = "FAL_KEY"

	// EnvOpenAIKey holds the OpenAI API key for prompt optimization.
	EnvOpenAIKey = "OPENAI_API_KEY"
)

// ErrSecretNotSet is returned when a secret's environment variable was
// empty at startup.
var ErrSecretNotSet = errors.New("secret is not set")

var memguardInitOnce sync.Once

// initMemguard installs the interrupt handler that wipes enclaves on
// SIGINT. Safe to call from every Secret constructor.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
	})
}

// Secret holds a sensitive value in a memguard enclave.
//
// Description:
//
//	The plaintext lives in encrypted locked memory between uses; Open
//	decrypts it just long enough to copy the value out, so call sites
//	should open secrets at the last possible moment and avoid retaining
//	the returned string. The zero value reports not set.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals a value into an enclave. The caller's copy of the
// value is not wiped; prefer SecretFromEnv which scrubs its source.
func NewSecret(value string) *Secret {
	if value == "" {
		return &Secret{}
	}
	initMemguard()
	return &Secret{enclave: memguard.NewEnclave([]byte(value))}
}

// SecretFromEnv seals the named environment variable into an enclave
// and removes it from the process environment so child processes and
// /proc never see it.
func SecretFromEnv(key string) *Secret {
	value := os.Getenv(key)
	if value == "" {
		return &Secret{}
	}
	initMemguard()
	s := &Secret{enclave: memguard.NewEnclave([]byte(value))}
	os.Unsetenv(key)
	return s
}

// IsSet reports whether the secret holds a value.
func (s *Secret) IsSet() bool {
	return s != nil && s.enclave != nil
}

// Open decrypts the secret and returns a copy of its value.
func (s *Secret) Open() (string, error) {
	if !s.IsSet() {
		return "", ErrSecretNotSet
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// OpenBytes decrypts the secret and returns a copy of its raw bytes.
// The JWT provider needs the key as bytes.
func (s *Secret) OpenBytes() ([]byte, error) {
	if !s.IsSet() {
		return nil, ErrSecretNotSet
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()
	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out, nil
}

// Secrets bundles the service credentials read at startup.
type Secrets struct {
	// JWTSecret signs and verifies API bearer tokens.
	JWTSecret *Secret

	// FalKey authenticates against fal.ai.
	FalKey *Secret

	// OpenAIKey authenticates against OpenAI.
	OpenAIKey *Secret
}

// LoadSecrets seals the service credentials from the environment.
// Unset variables yield unset secrets; callers decide which ones are
// mandatory for their mode of operation.
func LoadSecrets() Secrets {
	return Secrets{
		JWTSecret: SecretFromEnv(EnvJWTSecret),
		FalKey:    SecretFromEnv(EnvFalKey),
		OpenAIKey: SecretFromEnv(EnvOpenAIKey),
	}
}
