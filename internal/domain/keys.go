package domain

// KeyPrefix namespaces every Redis key the module writes.
// Overridable through storage config; this is the default.
const KeyPrefix = "ragdex:"
