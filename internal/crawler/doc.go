// Package crawler holds the types, interfaces and error kinds shared by the
// loader, crawl engine, cataloguer and dispatcher.
package crawler
