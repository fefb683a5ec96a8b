//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every package test under both backend tags.
func (Test) All() error {
	if err := goCmd("test", "./..."); err != nil {
		return err
	}
	return goCmd("test", "-tags", "opengl", "./...")
}
