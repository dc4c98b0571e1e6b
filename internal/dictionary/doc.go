// Package dictionary fetches Den Danske Ordbog (ordnet.dk) lookup pages,
// keeps them in an on-disk page cache and locates the pronunciation audio
// link inside the fetched markup.
package dictionary
