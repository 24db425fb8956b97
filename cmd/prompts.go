package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/encodeous/routesim/state"
	"github.com/manifoldco/promptui"
)

func promptDefaultStr(label string, def string, validateFunc promptui.ValidateFunc) (string, error) {
	prompt := promptui.Prompt{
		Label:     label,
		Default:   def,
		AllowEdit: true,
		Validate:  validateFunc,
	}
	return prompt.Run()
}

func promptYN(prefix string, def bool) bool {
	choose := promptui.Select{
		Label:     prefix,
		Items:     []string{"Yes", "No"},
		Size:      2,
		CursorPos: 0,
	}
	if !def {
		choose.CursorPos = 1
	}
	run, _, err := choose.Run()
	if err != nil {
		return false
	}
	return run == 0
}

// safeSaveFile asks where to save a file, confirming before an existing file is overwritten.
func safeSaveFile(path string, name string) (string, error) {
	for {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		fmt.Printf("Where do you want to save the %s?\n", name)
		path, err = promptDefaultStr("path", abs, state.PathValidator)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Warning: %s file already exists: %s, do you want to overwrite it?\n", name, path)
			if !promptYN("Overwrite?", false) {
				continue
			}
		}
		return path, nil
	}
}
