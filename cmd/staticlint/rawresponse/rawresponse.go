package rawresponse

import (
	"go/ast"
	"go/types"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/analysis"
)

const (
	routerPackage  = "router"
	envelopeWriter = "writeEnvelope"
)

// Analyzer reports responses written in package router without going
// through writeEnvelope: calls to http.Error and to Write or WriteHeader
// on an http.ResponseWriter. Such responses would skip the CORS headers
// and the JSON body the formatter guarantees.
var Analyzer = &analysis.Analyzer{
	Name: "rawresponse",
	Doc:  "requires package router to write responses through writeEnvelope only",
	Run:  run,
}

func run(pass *analysis.Pass) (interface{}, error) {
	if pass.Pkg.Name() != routerPackage {
		return nil, nil
	}

	for _, file := range pass.Files {
		// Exclude go-build cache files
		filename := pass.Fset.File(file.Pos()).Name()
		if isGoBuildCacheFile(filename) || strings.HasSuffix(filename, "_test.go") {
			continue
		}

		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Body == nil || (fn.Recv == nil && fn.Name.Name == envelopeWriter) {
				continue
			}

			ast.Inspect(fn.Body, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}

				sel, ok := call.Fun.(*ast.SelectorExpr)
				if !ok {
					return true
				}

				if isHTTPError(pass, sel) || isResponseWriterCall(pass, sel) {
					pass.Reportf(call.Pos(), "response written outside %s", envelopeWriter)
				}

				return true
			})
		}
	}
	return nil, nil
}

func isHTTPError(pass *analysis.Pass, sel *ast.SelectorExpr) bool {
	fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil {
		return false
	}

	return fn.Pkg().Path() == "net/http" && fn.Name() == "Error"
}

func isResponseWriterCall(pass *analysis.Pass, sel *ast.SelectorExpr) bool {
	if sel.Sel.Name != "Write" && sel.Sel.Name != "WriteHeader" {
		return false
	}

	receiver := pass.TypesInfo.TypeOf(sel.X)
	if receiver == nil {
		return false
	}

	return receiver.String() == "net/http.ResponseWriter"
}

func isGoBuildCacheFile(path string) bool {
	path = filepath.ToSlash(path)
	return strings.Contains(path, "/go-build/") || strings.Contains(path, `\go-build\`)
}
