// SPDX-FileCopyrightText : © 2024 Galvanized Logic Inc.
// SPDX-License-Identifier: BSD-2-Clause

package load

import (
	"fmt"

	"github.com/gazed/assetdb/id"
)

// NotFoundError is returned when a LoadPath's path has no entry in the
// library (spec §4.7.1 step 2).
type NotFoundError struct {
	Path id.AssetPath
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("load: %s not found in library", e.Path)
}

// IOError wraps a failure reading an artifact from cache/artifacts
// (spec §4.7.1 step 4.b).
type IOError struct {
	ID  id.ErasedId
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("load: reading artifact %s: %s", e.ID, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// MissingDeserializerError is returned when an artifact's type has no
// registered AssetMetadata to deserialize it with.
type MissingDeserializerError struct {
	ID   id.ErasedId
	Type id.AssetType
}

func (e *MissingDeserializerError) Error() string {
	return fmt.Sprintf("load: no deserializer registered for %s (artifact %s)", e.Type, e.ID)
}

// DeserializeError wraps a failure decoding an artifact's bytes into its
// runtime Asset value (spec §8 S6).
type DeserializeError struct {
	ID  id.ErasedId
	Err error
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("load: deserializing artifact %s: %s", e.ID, e.Err)
}
func (e *DeserializeError) Unwrap() error { return e.Err }
