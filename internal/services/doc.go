// Package services implements HTTP clients for the two external systems the
// sync talks to.
//
// [ABCPService] pulls garage (vehicle/customer) listings from the ABCP
// public API. Credentials travel as query parameters and are masked before
// any URL reaches the logs. Several candidate endpoint spellings are tried
// because deployed ABCP stands disagree about trailing slashes and /list
// suffixes, and "no cars in interval" arrives as an HTTP 404 with a JSON
// error code rather than an empty body.
//
// [BitrixService] drives the Bitrix24 REST webhook (crm.deal.add and
// crm.deal.update). Responses use a
// {"result": ...} / {"error": ...} envelope; API errors are classified into
// the shared transient/permanent/auth taxonomy so the engine can retry,
// skip or abort.
//
// Both clients pace themselves with a token-bucket rate limiter and bound
// every call with a request timeout, so a stuck upstream cannot block
// shutdown.
package services
