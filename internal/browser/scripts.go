package browser

import (
	"encoding/json"
	"fmt"
)

// jsElement returns a JS expression evaluating to the first element matching
// selector, or null.
func jsElement(selector string) string {
	quoted, _ := json.Marshal(selector)
	if IsXPath(selector) {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", quoted)
	}
	return fmt.Sprintf("document.querySelector(%s)", quoted)
}

// hiddenScript is true when the element is absent or not rendered.
func hiddenScript(selector string) string {
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return true;
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	return style.visibility === 'hidden' || style.display === 'none' || (rect.width === 0 && rect.height === 0);
})()`, jsElement(selector))
}

// selectScript selects value on a <select> and fires the events a user
// selection fires. It evaluates to false when no option has that value.
func selectScript(selector, value string) string {
	quoted, _ := json.Marshal(value)
	return fmt.Sprintf(`(() => {
	const el = %s;
	if (!el) return false;
	const opt = Array.from(el.options || []).find(o => o.value === %s || o.label === %s);
	if (!opt) return false;
	el.value = opt.value;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`, jsElement(selector), quoted, quoted)
}

const readyStateScript = `document.readyState`
