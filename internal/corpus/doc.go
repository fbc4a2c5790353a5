// Package corpus turns FAQ files into documents for the retriever.
package corpus
