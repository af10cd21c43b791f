package models

import "strings"

// ParseTag splits a tag expression into key and value. A bare token is a
// key with an empty value.
func ParseTag(tag string) (key, value string) {
	key, value, found := strings.Cut(tag, "=")
	if !found {
		return tag, ""
	}
	return key, value
}

// ParseTags converts a list of tag expressions into a tag map.
func ParseTags(tags []string) map[string]string {
	m := make(map[string]string, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		k, v := ParseTag(t)
		m[k] = v
	}
	return m
}
