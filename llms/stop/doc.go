// Package stop decides whether stop sequences are sent to a model and, when
// they are not, applies them on the client side.
//
// Some OpenAI-compatible gateways reject requests carrying a "stop"
// parameter for certain models. A Policy names the models that accept it;
// for the others the stop words are withheld and the response is cut at the
// first stop sequence instead, so callers see the same text either way.
//
//	model := stop.Guard(openaiLLM, stop.NeverSendStop, "deepseek-v3.1")
package stop
