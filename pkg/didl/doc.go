// Package didl encodes and decodes DIDL-Lite metadata documents, the XML
// form in which the ContentDirectory returns Browse and Search results, and
// handles the protocolInfo strings that describe resources.
package didl
