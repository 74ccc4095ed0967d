// Package serialization saves and restores computation graph snapshots in
// the .dagn format and exports parameters as SafeTensors.
//
// A snapshot holds everything needed to rebuild a graph bit for bit: the
// defaulted graph configuration, the flat parameter vector and, optionally,
// the flat updater state.
//
//	Format Structure:
//	  [0x00: Magic "DAGN"]
//	  [0x04: Version (uint32 LE)]
//	  [0x08: Flags (uint32 LE)]
//	  [0x0C: reserved]
//	  [0x10: Header Size (uint64 LE)]
//	  [0x18: Data Size (uint64 LE)]
//	  [0x20: SHA-256 of the data section]
//	  [0x40: Header: JSON metadata and embedded config]
//	  [Sections: little-endian float64, each 64-byte aligned]
//
// Example usage:
//
//	// Save a trained graph together with its updater state
//	if err := serialization.Save("model.dagn", g, true); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Rebuild it
//	g, err := serialization.Load("model.dagn", nn.NewFactory(), true)
//	if err != nil {
//	    log.Fatal(err)
//	}
package serialization
