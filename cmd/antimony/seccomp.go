package antimony

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/antimony-sandbox/antimony/internal/syscalldb"
	"github.com/antimony-sandbox/antimony/internal/ui"
	"github.com/antimony-sandbox/antimony/profile"
)

// NewSeccompCommand implements spec.md §3's `antimony seccomp
// {optimize|remove|export|merge|clean}` administrative group, wrapping
// C4's syscall database directly: every subcommand opens the database,
// performs one admin operation, and closes it again.
func NewSeccompCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "seccomp",
		Short: "Administer the recorded syscall database",
	}

	root.AddCommand(newSeccompOptimizeCommand())
	root.AddCommand(newSeccompRemoveCommand())
	root.AddCommand(newSeccompExportCommand())
	root.AddCommand(newSeccompMergeCommand())
	root.AddCommand(newSeccompCleanCommand())

	return root
}

func defaultDBPath() string {
	return filepath.Join(profile.AtHome(), "seccomp.db")
}

func openDB() (*syscalldb.DB, error) {
	return syscalldb.Open(defaultDBPath())
}

func newSeccompOptimizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "optimize",
		Short: "Compact the syscall database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				ui.ErrorExit(err)
				return err
			}
			defer db.Close()

			if err := db.Optimize(); err != nil {
				ui.ErrorExit(err)
				return err
			}
			fmt.Println(ui.Colors.Green("✓ Syscall database compacted"))
			return nil
		},
	}
}

func newSeccompRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <profile>",
		Short: "Remove a profile's recorded syscalls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				ui.ErrorExit(err)
				return err
			}
			defer db.Close()

			if err := db.Remove(args[0]); err != nil {
				ui.ErrorExit(err)
				return err
			}
			fmt.Printf("%s Removed recorded syscalls for %q\n", ui.Colors.Green("✓"), args[0])
			return nil
		},
	}
}

func newSeccompExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <destination>",
		Short: "Export the syscall database to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				ui.ErrorExit(err)
				return err
			}
			defer db.Close()

			if err := db.Export(args[0]); err != nil {
				ui.ErrorExit(err)
				return err
			}
			fmt.Printf("%s Exported syscall database to %s\n", ui.Colors.Green("✓"), args[0])
			return nil
		},
	}
}

func newSeccompMergeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <source>",
		Short: "Merge another syscall database into the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				ui.ErrorExit(err)
				return err
			}
			defer db.Close()

			if err := db.Merge(args[0]); err != nil {
				ui.ErrorExit(err)
				return err
			}
			fmt.Printf("%s Merged %s into the syscall database\n", ui.Colors.Green("✓"), args[0])
			return nil
		},
	}
}

func newSeccompCleanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Prune profiles and binaries that no longer exist on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				ui.ErrorExit(err)
				return err
			}
			defer db.Close()

			profileExists := func(name string) bool {
				_, err := profile.ResolvePath(name)
				return err == nil
			}
			binaryExists := func(path string) bool {
				_, err := os.Stat(path)
				return err == nil
			}

			removedProfiles, removedBinaries, err := db.Clean(profileExists, binaryExists)
			if err != nil {
				ui.ErrorExit(err)
				return err
			}

			fmt.Printf("%s Removed %d stale profile(s), %d stale binary(ies)\n",
				ui.Colors.Green("✓"), len(removedProfiles), len(removedBinaries))
			for _, name := range removedProfiles {
				fmt.Printf("  - profile: %s\n", name)
			}
			for _, path := range removedBinaries {
				fmt.Printf("  - binary: %s\n", path)
			}
			return nil
		},
	}
}
