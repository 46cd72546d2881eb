package functions

const searchInvoicesSchema = `{
	"type": "object",
	"properties": {
		"status": {"type": "string", "enum": ["draft", "unpaid", "overdue", "approved", "paid", "void"]},
		"supplier": {"type": "string", "minLength": 1},
		"due_before": {"type": "string", "format": "date"},
		"limit": {"type": "integer", "minimum": 1, "maximum": 100}
	},
	"additionalProperties": false
}`

const getInvoiceSchema = `{
	"type": "object",
	"properties": {
		"invoice": {"type": "string", "minLength": 1, "description": "invoice id or number"}
	},
	"required": ["invoice"],
	"additionalProperties": false
}`

const updateInvoiceStatusSchema = `{
	"type": "object",
	"properties": {
		"invoice_id": {"type": "string", "minLength": 1},
		"status": {"type": "string", "enum": ["draft", "unpaid", "overdue", "void"]}
	},
	"required": ["invoice_id", "status"],
	"additionalProperties": false
}`

const searchSuppliersSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"limit": {"type": "integer", "minimum": 1, "maximum": 100}
	},
	"additionalProperties": false
}`

const searchTransactionsSchema = `{
	"type": "object",
	"properties": {
		"from": {"type": "string", "format": "date"},
		"to": {"type": "string", "format": "date"},
		"description": {"type": "string"},
		"limit": {"type": "integer", "minimum": 1, "maximum": 200}
	},
	"additionalProperties": false
}`

const approvePaymentSchema = `{
	"type": "object",
	"properties": {
		"invoice_id": {"type": "string", "minLength": 1}
	},
	"required": ["invoice_id"],
	"additionalProperties": false
}`

const generateReportSchema = `{
	"type": "object",
	"properties": {
		"report": {"type": "string", "enum": ["invoices_by_status", "outstanding_by_supplier"]}
	},
	"additionalProperties": false
}`
