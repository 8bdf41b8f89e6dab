// Package tgui holds small Telegram UI helpers: inline keyboards, callback
// data packing within Telegram's 64 byte limit, and HTML escaping.
package tgui
