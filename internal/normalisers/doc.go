// Package normalisers turns submitted file content into plain text before
// it is stored and queued. Each sub package handles one format; Registry
// dispatches on the document's file type.
package normalisers
