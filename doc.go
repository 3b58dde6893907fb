/*
Package authcore is the identity, authenticator and session core of an
access-management system.

Authcore brings together the following pluggable components:

	Authenticator Manager	Owns the lifecycle of authenticators (passwords, PKI certificates)
	Providers		Answer the question "does this credential match its authenticator?"
	MFA Coordinator		Composes multiple provider results under an MFA policy
	Session Manager		Creates, validates, renews and terminates sessions

Storage is an in-memory abstraction behind narrow interfaces, so any of these
components can be swapped out. All stores are safe for concurrent use, and all
public methods of AuthenticatorManager and SessionManager are callable from
multiple threads.

Concepts

An Authenticator is the server-side record binding an identifier to a
verifiable secret (a password hash, or a certificate). A Credential is the
client-presented material proving possession of an authenticator. A Principal
is the authenticated subject emitted on success.

A Session is a server-side record of an ongoing authenticated interaction,
keyed by an opaque high-entropy id. Sessions accumulate re-authentication
reasons; a session with pending reasons remains alive, but the caller must
prove identity again before the session returns to ACTIVE.
*/
package authcore
