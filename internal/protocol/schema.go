// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import "github.com/xeipuuv/gojsonschema"

// =============================================================================
// INTERRUPT SCHEMAS
// =============================================================================

const confirmationSchema = `{
  "type": "object",
  "required": ["type", "message"],
  "properties": {
    "type": {"const": "confirmation"},
    "message": {"type": "string"},
    "reason": {"type": "string"},
    "tool_name": {"type": "string"},
    "args": {"type": "object"},
    "options": {"type": "array", "items": {"type": "string"}}
  }
}`

const selectionSchema = `{
  "type": "object",
  "required": ["type", "message", "candidates"],
  "properties": {
    "type": {"const": "selection"},
    "message": {"type": "string"},
    "tool_name": {"type": "string"},
    "candidates": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "name"],
        "properties": {
          "id": {"type": ["string", "integer"]},
          "name": {"type": "string"},
          "description": {"type": ["string", "null"]},
          "raw": {"type": ["object", "null"]}
        }
      }
    }
  }
}`

const askParamsSchema = `{
  "type": "object",
  "required": ["type", "message", "missing_params"],
  "properties": {
    "type": {"const": "ask_params"},
    "message": {"type": "string"},
    "tool_name": {"type": "string"},
    "missing_params": {"type": "array", "minItems": 1, "items": {"type": "string"}},
    "current_args": {"type": ["object", "null"]}
  }
}`

const saveMemorySchema = `{
  "type": "object",
  "required": ["type", "message", "memories"],
  "properties": {
    "type": {"const": "save_memory"},
    "message": {"type": "string"},
    "memories": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "data", "confidence"],
        "properties": {
          "type": {"enum": ["profile", "relationship"]},
          "data": {"type": "object"},
          "confidence": {"enum": ["high", "medium", "low"]}
        }
      }
    }
  }
}`

var interruptSchemas = map[InterruptKind]gojsonschema.JSONLoader{
	KindConfirmation: gojsonschema.NewStringLoader(confirmationSchema),
	KindSelection:    gojsonschema.NewStringLoader(selectionSchema),
	KindAskParams:    gojsonschema.NewStringLoader(askParamsSchema),
	KindSaveMemory:   gojsonschema.NewStringLoader(saveMemorySchema),
}
