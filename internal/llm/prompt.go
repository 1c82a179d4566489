package llm

// ExtractionPrompt is sent with every agreement document. The example pins the
// JSON shape the Schema Validator expects.
const ExtractionPrompt = `Extract complete tenancy information from this tenancy agreement document.
Return the following information as JSON:

Tenancy details:
- start_date: the tenancy start date (YYYY-MM-DD)
- end_date: the tenancy end date if specified (YYYY-MM-DD), or null if open-ended
- monthly_rent: the monthly rent as a number, without currency symbols
- deposit: the security deposit as a number, without currency symbols, or null if not specified

Renters (every person signing or renting):
- renters: an array of objects, each with
  - first_name
  - last_name
  - email (or null if not found)
  - phone_number (or null if not found)
  - is_primary: true for the primary/first renter, false for the others

Use null for any field not found in the document.
Return ONLY valid JSON, no additional text or explanations.

Example:
{
  "start_date": "2024-01-15",
  "end_date": "2025-01-14",
  "monthly_rent": 1500.00,
  "deposit": 3000.00,
  "renters": [
    {"first_name": "John", "last_name": "Doe", "email": "john@example.com", "phone_number": "+31612345678", "is_primary": true},
    {"first_name": "Jane", "last_name": "Doe", "email": "jane@example.com", "phone_number": "+31687654321", "is_primary": false}
  ]
}`
