// Package services implements the driving ports on top of the driven ones.
//
// IngestService turns uploaded bytes into stored, embedded chunks exactly
// once per content digest. Retriever and QueryService answer questions from
// those chunks with cited passages, degrading to retrieval-only results when
// generation fails. DocumentService, PromptService, TelemetryService and
// SettingsService cover the remaining surfaces.
//
// Provider calls go through RetryPolicy. Storage commits are never retried.
package services
