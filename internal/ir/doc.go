// Package ir is the in-memory program representation the instrumentation
// passes operate on.
//
// The representation is a typed three-address code over classes, fields and
// methods, close to the shape of JVM-level intermediate languages:
//
//	class demo.Worker extends java.lang.Object
//	    method public int compute(int)
//	        this := @this: demo.Worker
//	        a := @parameter0: int
//	        x = a + 1
//	        staticinvoke <demo.Lock: void await()>()
//	        return x
//
// Statements are compared by pointer identity. Branch targets, trap ranges
// and divergence points all refer to *Stmt values, so a statement keeps its
// identity when the statements around it are inserted or removed.
//
// The passes consume the package through a small contract:
//   - enumerate classes and methods ([Program.Classes], [Class.Methods])
//   - get and edit a method's statement list ([Body])
//   - clone a body ([Body.Clone])
//   - add fields and methods ([Class.AddField], [Class.AddMethod])
//   - query declarations and the type hierarchy ([Program])
//   - validate a rewritten body ([Validate])
//
// Thread Safety: values of this package are not safe for concurrent
// mutation. The pipeline is single-threaded; the interpreter only reads.
package ir
