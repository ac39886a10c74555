package store

import "errors"

// ErrNotFound is returned by FindByName when no ServerDefinition has that
// name.
var ErrNotFound = errors.New("store: definition not found")

// ErrDuplicateName names a server name that already exists. The sqlite
// Upsert does not return it: a definition with an existing name updates
// that row.
var ErrDuplicateName = errors.New("store: duplicate server name")
