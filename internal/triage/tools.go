package triage

import "vulnhalla.app/triage/common/llm"

const (
	toolFunctionCode   = "get_function_code"
	toolCallerFunction = "get_caller_function"
	toolClass          = "get_class"
	toolGlobalVar      = "get_global_var"
	toolMacro          = "get_macro"
)

// Tool parameter structs; schemas are generated from the jsonschema tags.

type functionCodeParams struct {
	FunctionName string `json:"function_name" jsonschema:"required,description=The name of the function to retrieve. In case of a class method provide ClassName::MethodName."`
}

type callerFunctionParams struct{}

type classParams struct {
	ObjectName string `json:"object_name" jsonschema:"required,description=The name of the class / struct / union."`
}

type globalVarParams struct {
	GlobalVarName string `json:"global_var_name" jsonschema:"required,description=The name of the global variable to retrieve or the name of a variable inside a Namespace."`
}

type macroParams struct {
	MacroName string `json:"macro_name" jsonschema:"required,description=The name of the macro."`
}

// toolDefinitions is the catalogue offered on every conversation turn.
func toolDefinitions() []llm.Tool {
	return []llm.Tool{
		{
			Name:        toolFunctionCode,
			Description: "Retrieves the code for a missing function code.",
			Parameters:  llm.GenerateSchemaFrom(functionCodeParams{}),
		},
		{
			Name: toolCallerFunction,
			Description: "Retrieves the caller function of the function with the issue. " +
				"Call it repeatedly to climb further up the call chain.",
			Parameters: llm.GenerateSchemaFrom(callerFunctionParams{}),
		},
		{
			Name: toolClass,
			Description: "Retrieves class / struct / union implementation (anywhere in code). " +
				"If you need a specific method from that class, use get_function_code instead.",
			Parameters: llm.GenerateSchemaFrom(classParams{}),
		},
		{
			Name: toolGlobalVar,
			Description: "Retrieves global variable definition (anywhere in code). " +
				"If it's a variable inside a class, request the class instead.",
			Parameters: llm.GenerateSchemaFrom(globalVarParams{}),
		},
		{
			Name:        toolMacro,
			Description: "Retrieves a macro definition (anywhere in code).",
			Parameters:  llm.GenerateSchemaFrom(macroParams{}),
		},
	}
}
