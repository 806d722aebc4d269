/*
Package types defines the collection data structures shared by every stage of a run.

# Overview

The types package provides shared type definitions for:
  - Collections, folders and request templates
  - Variables and vault secrets with domain restrictions
  - Request bodies and authentication blocks
  - Responses and wire-level execution traces

# Collection Types

Collection:
  - Top-level document with info, items, variables and auth
  - Items may be requests or folders (nested Item lists)
  - Flatten walks folders in document order

CollectionItem:
  - One request template plus its protocol profile behavior
  - Request fields are raw templates; nothing is resolved here

# Variables

VariableEntry:
  - key, value, type, enabled/disabled
  - _domains restricts a vault secret to matching hosts
  - Values may be strings, numbers or booleans in source files

# Field Tags

All types use JSON and YAML tags. The JSON shape follows the collection
format so exported collections load unchanged.
*/
package types
