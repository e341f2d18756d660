// Package config reads and writes the .gitwire.toml file kept at the root of a
// project repository.
//
// The file holds a single [wire] table with an entries array:
//
//	[wire]
//	entries = [
//	    { name = "docs", url = "https://example.com/r.git", rev = "main", src = ["docs"], dst = "vendor/docs" },
//	]
//
// The src key accepts either a string or an array of strings. Loading fails
// closed: every problem is reported with its own error code (see the CodeConfig*
// constants of the gitwire package) and no partially valid entry list is ever
// returned.
//
// Basic usage:
//
//	root, err := config.FindRoot(".")
//	if err != nil {
//	    return err
//	}
//	entries, err := config.NewLoader().Load(root)
package config
