package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/sr-verde/gitmentario/tools/linters/enumvalidator"
)

func main() {
	singlechecker.Main(enumvalidator.Analyzer)
}
