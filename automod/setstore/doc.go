// Automod component for named sets of strings, such as extra suspicious keywords, loaded from a JSON file at startup.
package setstore
