package api

import "github.com/example/coop-ledger/internal/security"

var (
	openAccountValidator      = security.MustJSONSchemaValidator(openAccountSchema)
	replaceOwnershipValidator = security.MustJSONSchemaValidator(replaceOwnershipSchema)
)

const ownershipRecordSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "maxLength": 255},
    "relation": {"type": "string", "maxLength": 64},
    "member_id": {"type": "integer", "minimum": 0},
    "share_percent": {"type": ["number", "string"]},
    "address": {"type": "string", "maxLength": 512},
    "instruction": {"type": "string", "maxLength": 512}
  }
}`

const ownershipSetSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "nominees": {"type": "array", "maxItems": 20, "items": ` + ownershipRecordSchema + `},
    "joint_holders": {"type": "array", "maxItems": 20, "items": ` + ownershipRecordSchema + `},
    "withdrawal_rules": {"type": "array", "maxItems": 20, "items": ` + ownershipRecordSchema + `}
  }
}`

const openAccountSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["account_type", "product_id"],
  "properties": {
    "account_type": {"type": "string", "enum": ["general", "saving", "fixed_deposit", "recurring_deposit", "loan", "share"]},
    "product_id": {"type": "integer", "minimum": 1},
    "account_no": {"type": "string", "maxLength": 50},
    "suffix": {"type": "integer", "minimum": 0},
    "name": {"type": "string", "maxLength": 255},
    "member_id": {"type": "integer", "minimum": 0},
    "opened_on": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "ownership": ` + ownershipSetSchema + `,
    "opening_amount": {"type": ["number", "string"]},
    "entry_type": {"type": "string", "enum": ["Dr", "Cr"]},
    "funding_account_id": {"type": "integer", "minimum": 1},
    "narration": {"type": "string", "maxLength": 255}
  }
}`

const replaceOwnershipSchema = ownershipSetSchema
