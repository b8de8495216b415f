// Package description renders UPnP device and service description documents.
//
// A root device is described with its embedded devices in one document.
// Service URLs in that document are the registry's absolute paths, so no
// URLBase element is needed: control points resolve them against the URL
// they fetched the description from.
package description
