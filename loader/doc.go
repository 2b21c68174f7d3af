// Package loader decodes ELM libraries serialized as JSON into the
// in-memory model of package elm.
//
// The decoder understands the JSON produced by the CQL-to-ELM translator:
// a top-level "library" object whose definition sections are wrapped in
// {"def": [...]} envelopes and whose expressions carry a "type"
// discriminator. Node kinds that requirements inference does not inspect
// are decoded into elm.Operator with their child expressions collected in
// a stable order, so every reachable Retrieve, Property and reference is
// preserved.
//
// Example usage:
//
//	data, _ := os.ReadFile("FHIRHelpers-4.0.1.json")
//	lib, err := loader.DecodeLibrary(data)
//	if err != nil {
//		return err
//	}
//	fmt.Println(lib.Identifier)
package loader
