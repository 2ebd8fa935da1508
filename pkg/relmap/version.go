// Package relmap carries module-wide metadata.
package relmap

// Version is the module version reported by the CLI.
const Version = "0.1.0"
