// Package sources provides the data sources polled by sessions.
//
// A source turns one remote read into a Payload and reports failures in the
// form the fetch executor classifies: non-successful HTTP responses become
// *fetch.HTTPError (with any Retry-After hint), transport errors are returned
// as they are.
//
// Current implementations:
//   - HTTPSource: GETs a JSON endpoint with the bearer token of the current
//     session, revalidates with If-None-Match and counts items with a gjson path
package sources
