// Package jir reads and writes the line-oriented text form of ir classes.
//
// A document starts with a version header and lists classes:
//
//	jir 1.0
//
//	class demo.Worker extends java.lang.Object implements java.lang.Runnable {
//	    field private int count
//	    method public int compute(int) {
//	        local this demo.Worker
//	        local x int
//	        this := @this: demo.Worker
//	        x := @parameter0: int
//	      label1:
//	        if x < 10 goto label2
//	        x = x - 1
//	        goto label1
//	      label2:
//	        return x
//	    }
//	}
//
// Phantom classes ("phantom class ...") declare library types whose members
// are unknown. Binary operators must be surrounded by spaces so that "<"
// is not read as the start of a signature.
//
// Files ending in .zst are zstd-compressed.
package jir
