// Package reporting builds the dashboard and audit read models over the
// session store, the activity log and the identity provider. It never
// writes.
package reporting
