// Package classifier turns a conversation into a structured Intent.
//
// # Intent
//
// An Intent is a tagged union selected by Kind:
//
//   - KindOperation: Operation{Action, UserName, Amount, IBAN}; absent
//     fields are nil
//   - KindInquiry: Response holds text to show the user verbatim
//
// Actions outside the supported set are kept as-is; the router decides
// what to do with them.
//
// # Backends
//
// Anthropic calls the Messages API with a bank-agent system prompt, the
// retrieved context appended to it, and the session history:
//
//	c := classifier.NewAnthropic(cfg.Classifier, logger)
//	intent, err := c.Classify(ctx, sess.History(), contextText)
//
// Model output goes through Parse, which accepts several JSON shapes and
// tolerates code fences. Transport failures are ErrUnavailable and
// unusable output is ErrMalformed.
package classifier
