// Package home stores the ownership hierarchy that scopes device access:
// a Home has Floors, a Floor has Rooms, and devices hang off rooms.
//
// Users reach a home either by owning it or through a Grant, which also
// records a level (owner, admin, user, guest). The level is informational
// for reads; write paths that need it filter with access.HasLevel.
package home
