package ata

import "github.com/ehrlich-b/go-ata/internal/interfaces"

// Backing is the capability set a registered device forwards read, write
// and seek calls to. See interfaces.Backing.
type Backing = interfaces.Backing

// BlockBacking is a Backing with known geometry
type BlockBacking = interfaces.BlockBacking

// StatBacking is a Backing that reports statistics
type StatBacking = interfaces.StatBacking
